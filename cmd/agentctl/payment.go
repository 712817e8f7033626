package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/units"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

func paymentCommand() *command {
	return &command{
		Name:    "payment",
		Summary: "Payment commands",
		Subcommands: []*command{
			paymentSendCommand(),
			paymentStatusCommand(),
			paymentHistoryCommand(),
		},
	}
}

func paymentSendCommand() *command {
	var (
		inUnits bool
		memo    string
	)
	return &command{
		Name:    "send",
		Summary: "Send a payment and wait for settlement",
		Usage:   "<fromAgentId> <toAgentId> <amount> [--units] [--memo text]",
		Flags: func(fs *pflag.FlagSet) {
			fs.BoolVarP(&inUnits, "units", "u", false, "amount is in the human unit instead of the smallest unit")
			fs.StringVarP(&memo, "memo", "m", "", "payment memo")
		},
		Run: func(e *env, args []string) error {
			if err := exactArgs(args, 3, "<fromAgentId> <toAgentId> <amount>"); err != nil {
				return err
			}
			from, to := args[0], args[1]
			amount, err := parseAmount(args[2], inUnits)
			if err != nil {
				return err
			}
			if from == to {
				return errors.New("cannot send a payment to the same agent")
			}

			a, err := e.application()
			if err != nil {
				return err
			}
			req := ports.CreatePaymentRequest{FromAgentID: from, ToAgentID: to, Amount: amount}
			if memo != "" {
				req.Memo = &memo
			}
			created, err := a.Payments.Create(e.ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Payment %s created, processing...\n", created.ID)

			done, procErr := a.Payments.Process(e.ctx, created.ID)
			if done != nil {
				printPayment(e.out, done)
			}
			if procErr != nil {
				return fmt.Errorf("payment failed: %w", procErr)
			}
			return nil
		},
	}
}

func paymentStatusCommand() *command {
	var agentID string
	return &command{
		Name:    "status",
		Summary: "Show a payment",
		Usage:   "<paymentId> [--agent agentId]",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringVarP(&agentID, "agent", "a", "", "only show the payment if this agent is a party to it")
		},
		Run: func(e *env, args []string) error {
			if err := exactArgs(args, 1, "<paymentId>"); err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid payment id %q", args[0])
			}
			a, err := e.application()
			if err != nil {
				return err
			}
			var requester *string
			if agentID != "" {
				requester = &agentID
			}
			payment, err := a.Payments.Get(e.ctx, id, requester)
			if err != nil {
				return err
			}
			if payment == nil {
				return fmt.Errorf("payment %s not found", id)
			}
			printPayment(e.out, payment)
			return nil
		},
	}
}

func paymentHistoryCommand() *command {
	var limit int
	return &command{
		Name:    "history",
		Summary: "List an agent's payments, newest first",
		Usage:   "<agentId> [--limit n]",
		Flags: func(fs *pflag.FlagSet) {
			fs.IntVarP(&limit, "limit", "l", 10, "maximum number of payments")
		},
		Run: func(e *env, args []string) error {
			if err := exactArgs(args, 1, "<agentId>"); err != nil {
				return err
			}
			if limit <= 0 {
				return errors.New("limit must be positive")
			}
			a, err := e.application()
			if err != nil {
				return err
			}
			payments, err := a.Payments.ListForAgent(e.ctx, ports.PaymentListParams{
				AgentID: args[0],
				Order:   domain.SortDescending,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			if len(payments) == 0 {
				fmt.Fprintf(e.out, "No payments for %s\n", args[0])
				return nil
			}
			for _, p := range payments {
				direction := "sent to " + p.ToAgentID
				if p.ToAgentID == args[0] {
					direction = "received from " + p.FromAgentID
				}
				fmt.Fprintf(e.out, "%s  %-9s  %d  %s  %s\n",
					p.ID, p.Status, p.Amount, direction, p.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func parseAmount(raw string, inUnits bool) (int64, error) {
	var (
		amount int64
		err    error
	)
	if inUnits {
		amount, err = units.ParseUnits(raw)
	} else {
		amount, err = strconv.ParseInt(raw, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	return amount, nil
}

func printPayment(w io.Writer, p *domain.PaymentRecord) {
	fmt.Fprintf(w, "ID:         %s\n", p.ID)
	fmt.Fprintf(w, "Status:     %s\n", p.Status)
	fmt.Fprintf(w, "From:       %s\n", p.FromAgentID)
	fmt.Fprintf(w, "To:         %s\n", p.ToAgentID)
	fmt.Fprintf(w, "Amount:     %d (%s units)\n", p.Amount, units.Format(p.Amount))
	if p.Memo != nil {
		fmt.Fprintf(w, "Memo:       %s\n", *p.Memo)
	}
	if p.SettlementID != nil {
		fmt.Fprintf(w, "Settlement: %s\n", *p.SettlementID)
	}
	if p.FailureReason != nil {
		fmt.Fprintf(w, "Failure:    %s\n", *p.FailureReason)
	}
	fmt.Fprintf(w, "Created:    %s\n", p.CreatedAt.Format(time.RFC3339))
	if p.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:  %s\n", p.CompletedAt.Format(time.RFC3339))
	}
}
