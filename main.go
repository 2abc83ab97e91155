/*
Copyright © 2025 dxldiag contributors
*/
package main

import "github.com/dxltools/dxldiag/cmd"

func main() {
	cmd.Execute()
}
