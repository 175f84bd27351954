package main

import "contact-manager/cmd"

func main() {
	cmd.Execute()
}
