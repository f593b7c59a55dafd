// Command mongodoc inspects and queries collections declared in a schema
// file.
package main

func main() {
	Cmd()
}
