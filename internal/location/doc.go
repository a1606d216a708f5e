// Package location manages the rooms devices are grouped into.
//
// Rooms are flat: there is no site or floor hierarchy above them. A room
// listing carries two derived counts, the devices assigned to the room and
// how many of them report on=true.
//
// Deleting a room never deletes devices; they become unassigned.
package location
