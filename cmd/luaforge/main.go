package main

import "luaforge/internal/luaforge"

func main() {
	luaforge.Main()
}
