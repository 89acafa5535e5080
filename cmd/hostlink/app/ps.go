// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hostlink/hostlink/pkg/backend/local"
	"github.com/hostlink/hostlink/pkg/config"
)

func newPSCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List processes visible on the local system",
		RunE:  psCmdFunc,
	}
}

func psCmdFunc(_ *cobra.Command, _ []string) error {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := local.NewHostSession(false, cfg.DataDir)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	procs, err := session.EnumerateProcesses(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "PID\tNAME")
	for _, p := range procs {
		fmt.Fprintf(w, "%d\t%s\n", p.PID, p.Name)
	}
	return nil
}
