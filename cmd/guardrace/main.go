// guardrace races a content guard against generation and only releases
// output the guard has accepted.
package main

import "github.com/ppiankov/guardrace/internal/cli"

func main() {
	cli.Execute()
}
