package main

import "github.com/ValentinKolb/vsign/cmd"

func main() {
	cmd.Execute()
}
