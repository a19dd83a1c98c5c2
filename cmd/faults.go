// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eklim/faultlink/pkg/faultstore"
	"github.com/eklim/faultlink/pkg/link"
)

var (
	faultsStore string
	faultsMax   int
)

var faultsCmd = &cobra.Command{
	Use:   "faults",
	Short: "Pull every fault record from the recorder",
	Long: `Rewind the recorder's fault list and read records until it reports the end
of the list.

With --store the records are also appended to a fault database, the same one
the daemon writes to.`,
	RunE: runFaults,
}

func init() {
	rootCmd.AddCommand(faultsCmd)
	faultsCmd.Flags().StringVar(&faultsStore, "store", "", "Fault database to append records to")
	faultsCmd.Flags().IntVar(&faultsMax, "max", 256, "Maximum number of records to read")
}

func runFaults(cmd *cobra.Command, args []string) error {
	transport, connInfo, err := openTransport()
	if err != nil {
		return err
	}
	defer transport.Close()

	var store *faultstore.Store
	if faultsStore != "" {
		if store, err = faultstore.Open(faultsStore); err != nil {
			return err
		}
		defer store.Close()
	}

	fmt.Printf("Faultlink - Fault Records\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	client := link.NewClient(transport)
	records, err := client.FetchFaults(faultsMax)
	for i, record := range records {
		fmt.Printf("--- Record %d (%d bytes) ---\n%s\n\n", i+1, len(record), record)

		if store != nil {
			origin := link.OriginNext
			if i == 0 {
				origin = link.OriginFirst
			}
			if _, err := store.Add(faultstore.Record{Data: record, Origin: origin}); err != nil {
				return fmt.Errorf("store record %d: %w", i+1, err)
			}
		}
	}
	if err != nil {
		return fmt.Errorf("after %d records: %w", len(records), err)
	}

	fmt.Printf("%d records read\n", len(records))
	return nil
}
