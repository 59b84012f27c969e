package providers

import (
	"github.com/glamlot/glamlot/internal/providers/email"
	"github.com/glamlot/glamlot/internal/providers/processor"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	processor.Module,
)
