package main

import (
	"github.com/kbukum/crossmatch/bootstrap"
	"github.com/kbukum/crossmatch/component"
)

// registerAll registers components in start order. They stop in reverse.
func registerAll[C bootstrap.Config](app *bootstrap.App[C], components ...component.Component) error {
	for _, c := range components {
		if err := app.RegisterComponent(c); err != nil {
			return err
		}
	}
	return nil
}
