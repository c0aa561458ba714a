package main

import (
	"fmt"
	"io"

	"merchantpay/internal/infrastructure/database"
	"merchantpay/internal/service"

	"github.com/spf13/cobra"
)

func verifyBalanceCmd() *cobra.Command {
	var merchantID, currency string
	var all bool

	cmd := &cobra.Command{
		Use:   "verify-balance",
		Short: "核对余额表与账本",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && merchantID == "" {
				return fmt.Errorf("需要 --merchant 或 --all")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(&cfg.Database)
			if err != nil {
				return err
			}

			ledger := service.NewLedgerService(db)
			var results []*service.BalanceVerification
			if all {
				results, err = ledger.VerifyAll(cmd.Context())
			} else {
				var r *service.BalanceVerification
				r, err = ledger.VerifyBalance(cmd.Context(), merchantID, currency)
				results = append(results, r)
			}
			if err != nil {
				return err
			}

			if mismatches := printVerifications(cmd.OutOrStdout(), results); mismatches > 0 {
				return fmt.Errorf("%d 个余额与账本不一致", mismatches)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&merchantID, "merchant", "m", "", "商户 ID")
	cmd.Flags().StringVar(&currency, "currency", "USD", "币种")
	cmd.Flags().BoolVar(&all, "all", false, "核对所有余额")
	return cmd
}

func printVerifications(w io.Writer, results []*service.BalanceVerification) int {
	mismatches := 0
	fmt.Fprintf(w, "%-36s  %-4s  %14s  %14s  %10s  %s\n", "MERCHANT", "CUR", "BALANCE", "LEDGER", "DIFF", "OK")
	for _, r := range results {
		ok := "yes"
		if !r.IsValid {
			ok = "NO"
			mismatches++
		}
		fmt.Fprintf(w, "%-36s  %-4s  %14d  %14d  %10d  %s\n",
			r.MerchantID, r.Currency, r.BalanceTableValue, r.LedgerCalculatedValue, r.Difference, ok)
	}
	return mismatches
}
