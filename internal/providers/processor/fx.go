package processor

import (
	"github.com/glamlot/glamlot/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.processor",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Processor {
	return NewMoyasar(cfg.Processor, log)
}
