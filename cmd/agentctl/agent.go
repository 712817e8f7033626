package main

import (
	"fmt"
	"time"

	"agentpay/pkg/units"

	"github.com/spf13/pflag"
)

func agentCommand() *command {
	return &command{
		Name:    "agent",
		Summary: "Agent management commands",
		Subcommands: []*command{
			agentRegisterCommand(),
			agentInfoCommand(),
			agentBalanceCommand(),
			agentListCommand(),
			agentDeactivateCommand(),
		},
	}
}

func agentRegisterCommand() *command {
	var address string
	return &command{
		Name:    "register",
		Summary: "Register a new agent",
		Usage:   "<agentId> [--address 0x...]",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringVarP(&address, "address", "a", "", "record an existing public address")
		},
		Run: func(e *env, args []string) error {
			if err := exactArgs(args, 1, "<agentId>"); err != nil {
				return err
			}
			a, err := e.application()
			if err != nil {
				return err
			}
			var addr *string
			if address != "" {
				addr = &address
			}
			agent, err := a.Directory.Register(e.ctx, args[0], addr)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, "Agent registered")
			fmt.Fprintf(e.out, "  ID:      %s\n", agent.ID)
			fmt.Fprintf(e.out, "  Address: %s\n", agent.Address)
			fmt.Fprintf(e.out, "  Created: %s\n", agent.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func agentInfoCommand() *command {
	return &command{
		Name:    "info",
		Summary: "Show agent details",
		Usage:   "<agentId>",
		Run: func(e *env, args []string) error {
			if err := exactArgs(args, 1, "<agentId>"); err != nil {
				return err
			}
			a, err := e.application()
			if err != nil {
				return err
			}
			agent, err := a.Directory.Get(e.ctx, args[0])
			if err != nil {
				return err
			}
			if agent == nil {
				return fmt.Errorf("agent %q does not exist", args[0])
			}
			fmt.Fprintf(e.out, "ID:      %s\n", agent.ID)
			fmt.Fprintf(e.out, "Address: %s\n", agent.Address)
			fmt.Fprintf(e.out, "Status:  %s\n", activeLabel(agent.IsActive))
			fmt.Fprintf(e.out, "Created: %s\n", agent.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func agentBalanceCommand() *command {
	var inUnits bool
	return &command{
		Name:    "balance",
		Summary: "Show the live wallet balance",
		Usage:   "<agentId> [--units]",
		Flags: func(fs *pflag.FlagSet) {
			fs.BoolVarP(&inUnits, "units", "u", false, "show the human unit first")
		},
		Run: func(e *env, args []string) error {
			if err := exactArgs(args, 1, "<agentId>"); err != nil {
				return err
			}
			a, err := e.application()
			if err != nil {
				return err
			}
			balance, err := a.Directory.Balance(e.ctx, args[0])
			if err != nil {
				return err
			}
			if inUnits {
				fmt.Fprintf(e.out, "%s units (%d smallest)\n", units.Format(balance), balance)
			} else {
				fmt.Fprintf(e.out, "%d smallest (%s units)\n", balance, units.Format(balance))
			}
			return nil
		},
	}
}

func agentListCommand() *command {
	return &command{
		Name:    "list",
		Summary: "List registered agents",
		Run: func(e *env, _ []string) error {
			a, err := e.application()
			if err != nil {
				return err
			}
			agents, err := a.Directory.List(e.ctx)
			if err != nil {
				return err
			}
			if len(agents) == 0 {
				fmt.Fprintln(e.out, "No agents registered")
				return nil
			}
			fmt.Fprintf(e.out, "%d agent(s)\n", len(agents))
			for _, agent := range agents {
				fmt.Fprintf(e.out, "  %s  %s  %s\n", agent.ID, agent.Address, activeLabel(agent.IsActive))
			}
			return nil
		},
	}
}

func agentDeactivateCommand() *command {
	return &command{
		Name:    "deactivate",
		Summary: "Mark an agent inactive",
		Usage:   "<agentId>",
		Run: func(e *env, args []string) error {
			if err := exactArgs(args, 1, "<agentId>"); err != nil {
				return err
			}
			a, err := e.application()
			if err != nil {
				return err
			}
			if err := a.Directory.Deactivate(e.ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Agent %s deactivated\n", args[0])
			return nil
		},
	}
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
