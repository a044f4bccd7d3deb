package app

import (
	"github.com/vk/taskgridgo/internal/registry"
	automationmod "github.com/vk/taskgridgo/modules/automation"
	"github.com/vk/taskgridgo/modules/http_request"
	"github.com/vk/taskgridgo/modules/print"
	"github.com/vk/taskgridgo/modules/sleep"
	"github.com/vk/taskgridgo/modules/upload"
)

// coreModules is the definitive list of all modules that are compiled into
// the binary.
var coreModules = []registry.Module{
	&automationmod.Module{},
	&http_request.Module{},
	&print.Module{},
	&sleep.Module{},
	&upload.Module{},
}
