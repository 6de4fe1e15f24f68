package main

import "github.com/lloydmeta/settle/app/cmd"

func main() {
	cmd.Execute()
}
