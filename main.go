/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/boatfuel/fueltracker/cmd"

func main() {
	cmd.Execute()
}
