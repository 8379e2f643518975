// Команда photoingest импортирует фотографии в организованное хранилище.
package main

import "github.com/artemshloyda/photoingest/internal/cli"

func main() {
	cli.Execute()
}
