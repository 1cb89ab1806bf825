// Command facetrack runs the face attendance service and manages its roster.
package main

func main() {
	Execute()
}
