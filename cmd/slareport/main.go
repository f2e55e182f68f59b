package main

const version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fail(err)
	}
}
