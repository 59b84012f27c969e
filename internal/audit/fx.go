package audit

import (
	"github.com/glamlot/glamlot/internal/audit/repository"
	"github.com/glamlot/glamlot/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
