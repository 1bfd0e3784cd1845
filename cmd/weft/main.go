// Command weft loads, runs, inspects and serves weft application documents.
package main

func main() {
	Execute()
}
