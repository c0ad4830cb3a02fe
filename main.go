package main

import "github.com/ValentinKolb/dTCP/cmd"

func main() {
	cmd.Execute()
}
