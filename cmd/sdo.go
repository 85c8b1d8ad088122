// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fuelboost/pkg/canopen"
)

var (
	sdoTimeout time.Duration
	sdoType    string
)

var sdoCmd = &cobra.Command{
	Use:   "sdo",
	Short: "Read and write the device object dictionary",
	Long: `Access object dictionary entries over the host link.

Entries are named by path (converter/measure/voltage_in) or by address
(0x2001.01). The device sends no response for unknown entries or refused
access, so those surface as timeouts.`,
}

var sdoListCmd = &cobra.Command{
	Use:   "list [category]",
	Short: "List dictionary entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSdoList,
}

var sdoReadCmd = &cobra.Command{
	Use:   "read <entry>...",
	Short: "Read one or more entries",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSdoRead,
}

var sdoWriteCmd = &cobra.Command{
	Use:   "write <entry> <value>",
	Short: "Write an entry",
	Long: `Write an entry. The value is parsed for the entry's data type; --type
overrides it for addresses the local dictionary does not know.`,
	Args: cobra.ExactArgs(2),
	RunE: runSdoWrite,
}

func init() {
	rootCmd.AddCommand(sdoCmd)
	sdoCmd.AddCommand(sdoListCmd, sdoReadCmd, sdoWriteCmd)
	sdoCmd.PersistentFlags().DurationVar(&sdoTimeout, "timeout", 2*time.Second, "Time to wait for each response")
	sdoWriteCmd.Flags().StringVar(&sdoType, "type", "", "Data type (bool, uint8 ... float32, string4)")
}

func runSdoList(cmd *cobra.Command, args []string) error {
	dict, err := deviceLayout()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tPATH\tTYPE\tACCESS\tUNIT")
	for _, e := range dict.Entries() {
		if len(args) == 1 && e.Category != args[0] {
			continue
		}
		fmt.Fprintf(tw, "0x%04X.%02X\t%s\t%s\t%s\t%s\n", e.Index, e.Subindex, e.Path(), e.Type, e.Access, e.Unit)
	}
	return tw.Flush()
}

// resolveEntry finds an entry in the local dictionary. Raw addresses the
// dictionary does not know are accepted when typ names their data type.
func resolveEntry(dict *canopen.Dictionary, name, typ string) (*canopen.Entry, error) {
	e, err := dict.Resolve(name)
	if err == nil {
		if typ == "" {
			return e, nil
		}
		t, err := canopen.ParseDataType(typ)
		if err != nil {
			return nil, err
		}
		override := *e
		override.Type = t
		return &override, nil
	}
	if typ == "" || !strings.Contains(name, ".") {
		return nil, err
	}

	t, perr := canopen.ParseDataType(typ)
	if perr != nil {
		return nil, perr
	}
	var index uint16
	var subindex uint8
	if _, serr := fmt.Sscanf(strings.ToLower(name), "0x%x.%x", &index, &subindex); serr != nil {
		return nil, err
	}
	return &canopen.Entry{
		Index:    index,
		Subindex: subindex,
		Category: "raw",
		Name:     name,
		Type:     t,
		Access:   canopen.AccessReadWrite,
	}, nil
}

func runSdoRead(cmd *cobra.Command, args []string) error {
	dict, err := deviceLayout()
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range args {
		e, err := resolveEntry(dict, name, "")
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), sdoTimeout)
		v, err := s.Read(ctx, e)
		cancel()
		if err != nil {
			return fmt.Errorf("%s: %w", e.Path(), err)
		}
		fmt.Printf("%s = %s %s\n", e.Path(), v, e.Unit)
	}
	return nil
}

func runSdoWrite(cmd *cobra.Command, args []string) error {
	dict, err := deviceLayout()
	if err != nil {
		return err
	}
	e, err := resolveEntry(dict, args[0], sdoType)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), sdoTimeout)
	defer cancel()
	if err := s.Write(ctx, e, args[1]); err != nil {
		return fmt.Errorf("%s: %w", e.Path(), err)
	}
	fmt.Printf("%s <- %s\n", e.Path(), args[1])
	return nil
}
