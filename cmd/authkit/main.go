package main

import "github.com/slmehta/authkit/cmd/authkit/cmd"

func main() {
	cmd.Execute()
}
