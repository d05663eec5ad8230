package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/technocodist/aitcsm/cmd/simrunner/cmd"
	"github.com/technocodist/aitcsm/internal/common"
	"github.com/technocodist/aitcsm/internal/common/logging"
)

func main() {
	logging.ConfigureLogging()
	if err := common.BindCommandlineArguments(); err != nil {
		log.WithError(err).Error("Failed to bind command line arguments")
		os.Exit(1)
	}
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
