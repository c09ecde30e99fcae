// Copyright 2026 Edgewire. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgewire/modbus"
)

var (
	readAddress  uint16
	readQuantity uint16
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read coils, discrete inputs or registers",
}

var readCoilsCmd = &cobra.Command{
	Use:     "coils",
	Aliases: []string{"c"},
	Short:   "Read coils (FC01)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(client modbus.Client) error {
			values, err := client.ReadCoils(readAddress, readQuantity)
			if err != nil {
				return err
			}
			printBits(readAddress, values)
			return nil
		})
	},
}

var readDiscreteInputsCmd = &cobra.Command{
	Use:     "discrete-inputs",
	Aliases: []string{"di"},
	Short:   "Read discrete inputs (FC02)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(client modbus.Client) error {
			values, err := client.ReadDiscreteInputs(readAddress, readQuantity)
			if err != nil {
				return err
			}
			printBits(readAddress, values)
			return nil
		})
	},
}

var readHoldingRegistersCmd = &cobra.Command{
	Use:     "holding-registers",
	Aliases: []string{"hr"},
	Short:   "Read holding registers (FC03)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(client modbus.Client) error {
			values, err := client.ReadHoldingRegisters(readAddress, readQuantity)
			if err != nil {
				return err
			}
			printRegisters(readAddress, values)
			return nil
		})
	},
}

var readInputRegistersCmd = &cobra.Command{
	Use:     "input-registers",
	Aliases: []string{"ir"},
	Short:   "Read input registers (FC04)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(client modbus.Client) error {
			values, err := client.ReadInputRegisters(readAddress, readQuantity)
			if err != nil {
				return err
			}
			printRegisters(readAddress, values)
			return nil
		})
	},
}

func init() {
	readCmd.PersistentFlags().Uint16VarP(&readAddress, "start", "a", 0, "starting address")
	readCmd.PersistentFlags().Uint16VarP(&readQuantity, "quantity", "q", 1, "number of items to read")

	readCmd.AddCommand(readCoilsCmd)
	readCmd.AddCommand(readDiscreteInputsCmd)
	readCmd.AddCommand(readHoldingRegistersCmd)
	readCmd.AddCommand(readInputRegistersCmd)
	rootCmd.AddCommand(readCmd)
}

func printBits(start uint16, values []bool) {
	for i, v := range values {
		state := "OFF"
		if v {
			state = "ON"
		}
		fmt.Printf("%5d: %s\n", start+uint16(i), state)
	}
}

func printRegisters(start uint16, values []uint16) {
	for i, v := range values {
		fmt.Printf("%5d: %6d  0x%04X\n", start+uint16(i), v, v)
	}
}
