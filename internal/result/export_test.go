package result

var CreateRunDirWithIDs = createRunDir
