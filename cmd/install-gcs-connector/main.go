package main

import "github.com/broadinstitute/install-gcs-connector/cmd/install-gcs-connector/cmd"

func main() {
	cmd.Execute()
}
