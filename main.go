package main

import "github.com/user/toolagent/cmd"

func main() {
	cmd.Execute()
}
