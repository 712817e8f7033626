package main

import (
	"fmt"

	"agentpay/pkg/units"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

func walletCommand() *command {
	return &command{
		Name:        "wallet",
		Summary:     "Wallet commands",
		Subcommands: []*command{walletInfoCommand(), walletConvertCommand()},
	}
}

func walletInfoCommand() *command {
	return &command{
		Name:    "info",
		Summary: "Show an agent's wallet address and live balance",
		Usage:   "<agentId>",
		Run: func(e *env, args []string) error {
			if err := exactArgs(args, 1, "<agentId>"); err != nil {
				return err
			}
			a, err := e.application()
			if err != nil {
				return err
			}
			address, err := a.Directory.ResolveAddress(e.ctx, args[0])
			if err != nil {
				return err
			}
			balance, err := a.Directory.Balance(e.ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Agent:   %s\n", args[0])
			fmt.Fprintf(e.out, "Address: %s\n", address)
			fmt.Fprintf(e.out, "Balance: %d smallest\n", balance)
			fmt.Fprintf(e.out, "Balance: %s units\n", units.Format(balance))
			return nil
		},
	}
}

func walletConvertCommand() *command {
	var to string
	return &command{
		Name:    "convert",
		Summary: "Convert between the human unit and the smallest unit",
		Usage:   "<amount> [--to units|smallest]",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringVarP(&to, "to", "t", "units", "target unit: units or smallest")
		},
		Run: func(e *env, args []string) error {
			if err := exactArgs(args, 1, "<amount>"); err != nil {
				return err
			}
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			switch to {
			case "smallest":
				fmt.Fprintf(e.out, "%s units = %d smallest\n", amount, units.FromUnits(amount))
			case "units":
				if !amount.IsInteger() {
					return fmt.Errorf("smallest-unit amount must be an integer")
				}
				fmt.Fprintf(e.out, "%s smallest = %s units\n", amount, units.Format(amount.IntPart()))
			default:
				return fmt.Errorf("unknown unit %q, want units or smallest", to)
			}
			return nil
		},
	}
}
