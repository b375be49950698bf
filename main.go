package main

import "github.com/ValentinKolb/hRPC/cmd"

func main() {
	cmd.Execute()
}
