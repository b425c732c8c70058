package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
)

func plansCmd() *cobra.Command {
	var (
		providerRef string
		plan        string
		interval    string
		label       string
	)

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Map a Stripe price to an internal plan",
		Long: `Map a Stripe price to an internal plan.

Subscriptions paid with the price grant the plan to the buyer. Running the
command again for the same price and interval updates the mapping.

Examples:
  seed plans --provider-ref price_1Hxyz --plan premium
  seed plans --provider-ref price_1Hxyz --plan premium --interval year --label "Premium yearly"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			announceTarget(cmd)
			openDatabase()

			gateway := billing.NewStripeGateway(billing.StripeConfig{
				SecretKey: env.GetEnv("STRIPE_SECRET_KEY", ""),
				PublicKey: env.GetEnv("STRIPE_PUBLIC_KEY", ""),
			})
			svc := billing.NewServiceFromDB(database.GetDB(), gateway)
			m, err := svc.UpsertPlanMapping(cmd.Context(), providerRef, plan, interval, label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mapped %s (%s) to plan %s\n", m.ProviderPlanRef, m.BillingInterval, m.InternalPlan)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerRef, "provider-ref", "", "Stripe price id (price_...)")
	cmd.Flags().StringVar(&plan, "plan", "premium", "internal plan granted by the price")
	cmd.Flags().StringVar(&interval, "interval", "month", "billing interval (month or year)")
	cmd.Flags().StringVar(&label, "label", "", "human readable label")
	_ = cmd.MarkFlagRequired("provider-ref")

	return cmd
}
