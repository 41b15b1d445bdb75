package main

import "github.com/frahmantamala/razorpay-reconciliation/cmd"

func main() {
	cmd.Execute()
}
