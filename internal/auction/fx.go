package auction

import (
	"github.com/glamlot/glamlot/internal/auction/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("auction",
	fx.Provide(repository.Provide),
)
