// Command tagstation runs a bottle tagging station and its maintenance tools.
package main
