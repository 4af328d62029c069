// Command leosim runs LEO constellation channel simulations described by
// YAML scenario files.
package main

func main() {
	Execute()
}
