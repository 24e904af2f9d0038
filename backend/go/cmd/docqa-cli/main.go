package main

import "DocQA/backend/go/cmd/docqa-cli/cmd"

func main() {
	cmd.Execute()
}
