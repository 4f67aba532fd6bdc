package main

import "github.com/KaramelBytes/sheetask/cmd"

func main() {
	cmd.Execute()
}
