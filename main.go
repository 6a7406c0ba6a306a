/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "aria/cmd"

func main() {
	cmd.Execute()
}
