// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/Klinikumxd/cibuildwheel/cmd/cibuildwheel"

func main() {
	cmd.Execute()
}
