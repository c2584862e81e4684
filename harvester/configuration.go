// SPDX-License-Identifier: GPL-3.0-or-later
package harvester

import "fmt"

type ConfigFunc func(c *configuration) error

// DryRun stores harvested messages but leaves the mailbox untouched.
func DryRun() ConfigFunc {
	return func(c *configuration) error {
		c.DryRun = true

		return nil
	}
}

func DeleteProcessed() ConfigFunc {
	return func(c *configuration) error {
		if c.MoveProcessed {
			return fmt.Errorf("MoveProcessed and DeleteProcessed cannot be used at the same time")
		}

		c.DeleteProcessed = true
		return nil
	}
}

func MoveProcessed(processedFolder string) ConfigFunc {
	return func(c *configuration) error {
		if len(processedFolder) == 0 {
			return fmt.Errorf("ProcessedFolder cannot be null")
		}

		if c.DeleteProcessed {
			return fmt.Errorf("MoveProcessed and DeleteProcessed cannot be used at the same time")
		}

		c.MoveProcessed = true
		c.ProcessedFolder = processedFolder
		return nil
	}
}

type configuration struct {
	DryRun bool

	DeleteProcessed bool
	MoveProcessed   bool

	ProcessedFolder string
}
