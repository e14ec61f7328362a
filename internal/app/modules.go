package app

import (
	"github.com/specialistvlad/bootreplay/internal/registry"
	"github.com/specialistvlad/bootreplay/modules/banner"
	"github.com/specialistvlad/bootreplay/modules/envvars"
	"github.com/specialistvlad/bootreplay/modules/printer"
)

// coreModules is the definitive list of all modules that are compiled into
// the bootreplay binary.
var coreModules = []registry.Module{
	&envvars.Module{},
	&printer.Module{},
	&banner.Module{},
}
