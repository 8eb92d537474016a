package main

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

func runCheck(logger *slog.Logger) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	checked, problems := build.CheckTemplates(cfg)
	for _, problem := range problems {
		fmt.Println(problem)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d of %d templates have problems", len(problems), checked)
	}
	logger.Info("all templates compile", slog.Int("templates", checked))
	return nil
}
