package main

import "github.com/materials-commons/dsstage/cmd/dsstaged/cmd"

func main() {
	cmd.Execute()
}
