package main

import "github.com/chanyoung/copymachine/cli"

func main() {
	cli.Execute()
}
