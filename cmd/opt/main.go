package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func main() {
	bin, err := exec.LookPath("optura")
	if err != nil {
		fmt.Fprintln(os.Stderr, "opt: optura not found on PATH")
		os.Exit(1)
	}
	if err := syscall.Exec(bin, append([]string{"optura"}, os.Args[1:]...), os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "opt: %v\n", err)
		os.Exit(1)
	}
}
