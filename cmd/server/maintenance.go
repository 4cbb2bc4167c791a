package main

import (
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"wikilinks/app/internal/app/bootstrap"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			defer rt.flush()

			if err := bootstrap.Migrate(cmd.Context(), rt.dependencies()); err != nil {
				return eris.Wrap(err, "migrating database")
			}

			rt.logger.Info("database migrated")
			return nil
		},
	}
}

func reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Delete pending links whose terms now resolve to an entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			defer rt.flush()

			store, err := bootstrap.OpenStore(cmd.Context(), rt.dependencies())
			if err != nil {
				return eris.Wrap(err, "opening store")
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil {
					rt.logger.WithError(closeErr).Error("closing store")
				}
			}()

			result, err := store.Reconciler.Sweep(cmd.Context())
			if err != nil {
				return eris.Wrap(err, "sweeping pending links")
			}

			rt.logger.WithFields(logrus.Fields{
				"terms_checked":  result.TermsChecked,
				"terms_resolved": result.TermsResolved,
				"deleted":        result.Deleted,
			}).Info("reconcile finished")
			return nil
		},
	}
}
