package main

import "github.com/jrhatch/mnemo/cmd"

func main() {
	cmd.Execute()
}
