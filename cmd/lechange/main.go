package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"k8s.io/test-infra/prow/interrupts"
)

func main() {
	go func() {
		interrupts.WaitForGracefulShutdown()
		os.Exit(1)
	}()

	cmd := newRootCommand()
	cmd.SetContext(interrupts.Context())
	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Fatal("lechange failed")
	}
}
