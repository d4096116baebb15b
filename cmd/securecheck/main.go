// Command securecheck runs the message-inspection rules engine: the admin
// backend server plus rule library tooling.
package main

func main() {
	Execute()
}
