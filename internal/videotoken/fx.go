package videotoken

import (
	"github.com/glamlot/glamlot/internal/videotoken/repository"
	"github.com/glamlot/glamlot/internal/videotoken/service"
	"go.uber.org/fx"
)

var Module = fx.Module("videotoken.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
