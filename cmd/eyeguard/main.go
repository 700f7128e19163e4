// Command eyeguard warns the viewer with a full-screen overlay while their
// face is too close to the camera.
package main

func main() {
	Execute()
}
